package oss

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ossPrefix 区分 OSS 对象与本地文件的产物路径前缀
const ossPrefix = "oss://"

// Store 报告产物存储。配置了 OSS 时上传到 OSS，否则落本地磁盘，
// 产物路径用 oss:// 前缀区分两种来源
type Store struct {
	client   *Client // nil 表示本地模式
	localDir string
}

func NewStore(client *Client, localDir string) *Store {
	if localDir == "" {
		localDir = filepath.Join(os.TempDir(), "repo_insight_reports")
	}
	if client == nil {
		log.Println("[Store] OSS not configured, reports will be saved locally")
	}
	return &Store{client: client, localDir: localDir}
}

// SaveReport 保存报告产物，返回可回读的产物路径
func (s *Store) SaveReport(name string, data []byte) (string, error) {
	if s.client != nil {
		objectKey := "reports/" + name
		if err := s.client.PutObject(objectKey, data, "text/plain; charset=utf-8"); err != nil {
			return "", err
		}
		return ossPrefix + objectKey, nil
	}

	if err := os.MkdirAll(s.localDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	localPath := filepath.Join(s.localDir, name)
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save report locally: %w", err)
	}
	return localPath, nil
}

// ReadReport 按产物路径读回报告内容
func (s *Store) ReadReport(artifactPath string) ([]byte, error) {
	if strings.HasPrefix(artifactPath, ossPrefix) {
		if s.client == nil {
			return nil, fmt.Errorf("artifact stored in OSS but OSS is not configured")
		}
		return s.client.GetObject(strings.TrimPrefix(artifactPath, ossPrefix))
	}
	return os.ReadFile(artifactPath)
}

// DeleteReport 删除报告产物，产物不存在不算错误
func (s *Store) DeleteReport(artifactPath string) error {
	if artifactPath == "" {
		return nil
	}
	if strings.HasPrefix(artifactPath, ossPrefix) {
		if s.client == nil {
			return nil
		}
		return s.client.DeleteObject(strings.TrimPrefix(artifactPath, ossPrefix))
	}
	err := os.Remove(artifactPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
