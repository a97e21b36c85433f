package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"omegamusic/config"
	"omegamusic/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobURLPrefix is the route prefix under which stored audio objects are
// served; a track's blobUrl is this prefix plus the object name.
const BlobURLPrefix = "/blob/"

// AudioStore keeps full-quality track audio in a MinIO bucket, keyed by
// track id.
type AudioStore struct {
	client *minio.Client
	bucket string
}

// NewAudioStore 初始化 MinIO 客户端并确保存储桶存在
func NewAudioStore(cfg *config.Config) (*AudioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return &AudioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// ObjectName returns the bucket object name for a track's audio.
func ObjectName(trackID string) string {
	return "tracks/" + trackID + ".mp3"
}

// ObjectNameFromBlobURL maps a stored blobUrl back to its object name, or ""
// if the URL does not point at this store.
func ObjectNameFromBlobURL(blobURL string) string {
	if !strings.HasPrefix(blobURL, BlobURLPrefix) {
		return ""
	}
	return strings.TrimPrefix(blobURL, BlobURLPrefix)
}

// PutAudio uploads a track's audio bytes and returns the blobUrl to record
// in the ledger.
func (s *AudioStore) PutAudio(ctx context.Context, trackID string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(trackID)
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传音频文件失败 %s: %w", objectName, err)
	}
	return BlobURLPrefix + objectName, nil
}

// GetAudio opens a stored audio object for streaming. The caller closes it.
func (s *AudioStore) GetAudio(ctx context.Context, objectName string) (*minio.Object, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取音频文件失败 %s: %w", objectName, err)
	}
	return object, nil
}

// StatAudio reports whether the audio object exists and its size.
func (s *AudioStore) StatAudio(ctx context.Context, objectName string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("查询音频文件失败 %s: %w", objectName, err)
	}
	return info.Size, nil
}
