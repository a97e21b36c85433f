package cmd

import (
	"omegamusic/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Omega Music服务器",
	Long:  `启动Omega Music的HTTP服务器，提供曲目注册、艺术家管理、支付解锁和趋势榜接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
