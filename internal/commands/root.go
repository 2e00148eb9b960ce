// Package commands 命令行入口：serve 启动服务，probe 发送一次测试调用。
package commands

import (
	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags 注入
var (
	Version   = "1.0.0"
	BuildTime = ""
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "text2image",
	Short:         "通义万相文生图代理与结果管理服务",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (默认查找 configs/config.yaml)")
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}
