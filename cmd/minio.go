package cmd

import (
	"fmt"
	"log"

	"omegamusic/config"
	"omegamusic/logger"
	"omegamusic/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO音频存储连接测试",
	Long:  `测试MinIO连接是否成功，并确保音频存储桶存在。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if cfg.MinioEndpoint == "" {
			log.Fatal("MINIO_ENDPOINT 未配置")
		}
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})

		fmt.Printf("MinIO配置: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		if _, err := storage.NewAudioStore(cfg); err != nil {
			log.Fatalf("MinIO初始化失败: %v", err)
		}
		fmt.Println("MinIO连接成功，存储桶就绪！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
