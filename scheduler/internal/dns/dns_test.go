package dns

import (
	"context"
	"errors"
	"testing"

	"yqhp/scheduler/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoute53 struct {
	inputs []*route53.ChangeResourceRecordSetsInput
	err    error
}

func (f *fakeRoute53) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &route53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &r53types.ChangeInfo{Id: aws.String("/change/C123")},
	}, nil
}

func TestFQDN(t *testing.T) {
	assert.Equal(t, "demo.mock.example.com", FQDN("demo", "mock.example.com"))
	assert.Equal(t, "demo.mock.example.com", FQDN("Demo.mock.example.com.", ".mock.example.com"))
	assert.Equal(t, "demo", FQDN("demo", ""))
}

func TestRoute53Provider_ReserveAndRelease(t *testing.T) {
	api := &fakeRoute53{}
	p := NewRoute53ProviderWithAPI(api, config.DnsConfig{HostedZoneID: "Z1", TTL: 60})

	id, err := p.Reserve(context.Background(), "demo.mock.example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "/change/C123", id)

	require.NoError(t, p.Release(context.Background(), "demo.mock.example.com", "10.0.0.1"))
	require.Len(t, api.inputs, 2)

	create := api.inputs[0]
	assert.Equal(t, "Z1", aws.ToString(create.HostedZoneId))
	change := create.ChangeBatch.Changes[0]
	assert.Equal(t, r53types.ChangeActionCreate, change.Action)
	assert.Equal(t, "demo.mock.example.com", aws.ToString(change.ResourceRecordSet.Name))
	assert.Equal(t, r53types.RRTypeA, change.ResourceRecordSet.Type)
	assert.Equal(t, int64(60), aws.ToInt64(change.ResourceRecordSet.TTL))
	assert.Equal(t, "10.0.0.1", aws.ToString(change.ResourceRecordSet.ResourceRecords[0].Value))

	assert.Equal(t, r53types.ChangeActionDelete, api.inputs[1].ChangeBatch.Changes[0].Action)
}

func TestRoute53Provider_Error(t *testing.T) {
	p := NewRoute53ProviderWithAPI(&fakeRoute53{err: errors.New("throttled")}, config.DnsConfig{HostedZoneID: "Z1", TTL: 60})
	_, err := p.Reserve(context.Background(), "demo.mock.example.com", "10.0.0.1")
	assert.ErrorContains(t, err, "throttled")
}

func TestNoopProvider(t *testing.T) {
	id, err := NoopProvider{}.Reserve(context.Background(), "a.b", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "local:a.b", id)
	assert.NoError(t, NoopProvider{}.Release(context.Background(), "a.b", "1.1.1.1"))
}
