// Package dns 云部署模式下为 Mock 服务分配域名解析
package dns

import (
	"context"
	"fmt"
	"strings"
)

// Provider 域名解析服务商
type Provider interface {
	// Reserve 将 fqdn 解析到 ip，返回服务商记录 ID
	Reserve(ctx context.Context, fqdn, ip string) (string, error)
	// Release 删除解析记录
	Release(ctx context.Context, fqdn, ip string) error
}

// FQDN 拼接完整域名，domain 已带后缀时不重复追加
func FQDN(domain, suffix string) string {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	suffix = strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), ".")
	if suffix == "" || domain == suffix || strings.HasSuffix(domain, "."+suffix) {
		return domain
	}
	return fmt.Sprintf("%s.%s", domain, suffix)
}

// NoopProvider 私有部署不调用外部解析，仅保留占用记录
type NoopProvider struct{}

func (NoopProvider) Reserve(_ context.Context, fqdn, _ string) (string, error) {
	return "local:" + fqdn, nil
}

func (NoopProvider) Release(context.Context, string, string) error {
	return nil
}
