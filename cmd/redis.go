package cmd

import (
	"context"
	"fmt"
	"log"

	"omegamusic/config"
	"omegamusic/store"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis存储后端连接测试",
	Long:  `测试Redis连接是否成功，并打印当前快照中的实体数量。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis存储后端...")

		cfg := config.Load()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		backend, err := store.NewRedisBackend(cfg)
		if err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer backend.Close()
		fmt.Println("Redis连接成功！")

		snap, err := backend.Load(context.Background())
		if err != nil {
			log.Fatalf("读取快照失败: %v", err)
		}
		if snap == nil {
			fmt.Println("尚无持久化快照。")
			return
		}
		fmt.Printf("快照内容: %d 个曲目, %d 个已使用签名, %d 个钱包的艺术家\n",
			len(snap.Tracks), len(snap.UsedSignatures), len(snap.Artists))
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
