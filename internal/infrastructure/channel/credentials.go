package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	domainchannel "github.com/chatmirror/gateway/internal/domain/channel"
)

// FileCredentialStore 文件凭据存储
//
// 每个槽位一个不透明 blob 文件；内容由通道客户端产生和消费，网关只负责
// 落盘。写入走临时文件 + rename，避免轮换到一半的 blob 被读到。
type FileCredentialStore struct {
	dir string
}

// NewFileCredentialStore 创建文件凭据存储
func NewFileCredentialStore(dir string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &FileCredentialStore{dir: dir}, nil
}

var _ domainchannel.CredentialStore = (*FileCredentialStore)(nil)

// Load 读取槽位凭据；从未配对过返回 nil
func (s *FileCredentialStore) Load(slot string) ([]byte, error) {
	path, err := s.path(slot)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials for %s: %w", slot, err)
	}
	return blob, nil
}

// Save 持久化轮换后的凭据
func (s *FileCredentialStore) Save(slot string, blob []byte) error {
	path, err := s.path(slot)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		return fmt.Errorf("write credentials for %s: %w", slot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit credentials for %s: %w", slot, err)
	}
	return nil
}

// Delete 丢弃槽位凭据（forceReset 用）；不存在不算错误
func (s *FileCredentialStore) Delete(slot string) error {
	path, err := s.path(slot)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credentials for %s: %w", slot, err)
	}
	return nil
}

// path 校验槽位名并返回 blob 路径；拒绝路径穿越
func (s *FileCredentialStore) path(slot string) (string, error) {
	if slot == "" || strings.ContainsAny(slot, `/\`) || strings.Contains(slot, "..") {
		return "", fmt.Errorf("invalid slot name: %q", slot)
	}
	return filepath.Join(s.dir, slot+".creds"), nil
}
