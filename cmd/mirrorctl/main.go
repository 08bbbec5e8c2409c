package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	ctlVersion = "0.1.0"
	ctlName    = "mirrorctl"
)

var apiAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   ctlName,
		Short: "Chatmirror — 消息镜像网关控制工具",
		Long:  "mirrorctl 通过 HTTP API 查看槽位状态、收件箱与历史, 并执行管理操作",
	}

	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://127.0.0.1:18790", "网关地址")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status [slot]",
		Short: "查看会话状态",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return getJSON("/api/v1/status/"+url.PathEscape(args[0]), nil)
			}
			return getJSON("/api/v1/status", nil)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "pairing <slot>",
		Short: "查看配对挑战",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/slots/"+url.PathEscape(args[0])+"/pairing", nil)
		},
	})

	inboxCmd := &cobra.Command{
		Use:   "inbox",
		Short: "每个对端的最新一条消息",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			addFlag(q, cmd, "slot")
			addFlag(q, cmd, "limit")
			return getJSON("/api/v1/inbox", q)
		},
	}
	inboxCmd.Flags().String("slot", "", "限定槽位")
	inboxCmd.Flags().String("limit", "", "返回条数上限")
	rootCmd.AddCommand(inboxCmd)

	historyCmd := &cobra.Command{
		Use:   "history <slot> <counterpart>",
		Short: "单对端的历史消息 (升序)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("slot", args[0])
			q.Set("counterpart", args[1])
			addFlag(q, cmd, "before")
			addFlag(q, cmd, "limit")
			return getJSON("/api/v1/history", q)
		},
	}
	historyCmd.Flags().String("before", "", "只取早于该毫秒时间戳的消息")
	historyCmd.Flags().String("limit", "", "返回条数上限")
	rootCmd.AddCommand(historyCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "按槽位聚合的消息统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			addFlag(q, cmd, "slot")
			addFlag(q, cmd, "from")
			addFlag(q, cmd, "to")
			return getJSON("/api/v1/stats", q)
		},
	}
	statsCmd.Flags().String("slot", "", "限定槽位")
	statsCmd.Flags().String("from", "", "起始毫秒时间戳")
	statsCmd.Flags().String("to", "", "结束毫秒时间戳")
	rootCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reset <slot>",
		Short: "丢弃凭据并强制重新配对",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/v1/slots/"+url.PathEscape(args[0])+"/reset", nil)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", ctlName, ctlVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addFlag(q url.Values, cmd *cobra.Command, name string) {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		q.Set(name, v)
	}
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func getJSON(path string, q url.Values) error {
	u := apiAddr + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := httpClient.Get(u)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func postJSON(path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := httpClient.Post(apiAddr+path, "application/json", &buf)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// printResponse 缩进输出响应体; 非 2xx 状态返回错误
func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		pretty.Write(data)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}
