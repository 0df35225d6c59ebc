package cmd

import (
	"minifm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动minifm服务器",
	Long:  `启动minifm音乐服务器，提供上传、目录管理与流媒体接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
