package dns

import (
	"context"
	"fmt"

	"yqhp/scheduler/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Route53API 用到的 Route53 接口
type Route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53Provider 基于 Route53 托管区的 A 记录解析
type Route53Provider struct {
	api          Route53API
	hostedZoneID string
	ttl          int64
}

// NewRoute53Provider 使用默认凭证链创建 Route53 解析
func NewRoute53Provider(ctx context.Context, cfg config.DnsConfig) (*Route53Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}
	return NewRoute53ProviderWithAPI(route53.NewFromConfig(awsCfg), cfg), nil
}

// NewRoute53ProviderWithAPI 使用指定客户端创建
func NewRoute53ProviderWithAPI(api Route53API, cfg config.DnsConfig) *Route53Provider {
	return &Route53Provider{
		api:          api,
		hostedZoneID: cfg.HostedZoneID,
		ttl:          cfg.TTL,
	}
}

func (p *Route53Provider) change(ctx context.Context, action r53types.ChangeAction, fqdn, ip string) (*route53.ChangeResourceRecordSetsOutput, error) {
	return p.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(p.hostedZoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String("yqhp mock service"),
			Changes: []r53types.Change{{
				Action: action,
				ResourceRecordSet: &r53types.ResourceRecordSet{
					Name:            aws.String(fqdn),
					Type:            r53types.RRTypeA,
					TTL:             aws.Int64(p.ttl),
					ResourceRecords: []r53types.ResourceRecord{{Value: aws.String(ip)}},
				},
			}},
		},
	})
}

// Reserve 创建 A 记录，记录已存在时 Route53 拒绝
func (p *Route53Provider) Reserve(ctx context.Context, fqdn, ip string) (string, error) {
	out, err := p.change(ctx, r53types.ChangeActionCreate, fqdn, ip)
	if err != nil {
		return "", fmt.Errorf("创建解析记录 %s 失败: %w", fqdn, err)
	}
	if out.ChangeInfo != nil && out.ChangeInfo.Id != nil {
		return *out.ChangeInfo.Id, nil
	}
	return fqdn, nil
}

// Release 删除 A 记录
func (p *Route53Provider) Release(ctx context.Context, fqdn, ip string) error {
	if _, err := p.change(ctx, r53types.ChangeActionDelete, fqdn, ip); err != nil {
		return fmt.Errorf("删除解析记录 %s 失败: %w", fqdn, err)
	}
	return nil
}
