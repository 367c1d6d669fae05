package webhook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinapro/backend/pkg/webhook"
)

func TestSign_GoldenValue(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"evento":"OS_CRIADA","entidadeId":"42"}`)
	assert.Equal(t,
		"43ccc9208018289ca4940c163291571efdc1ba629bd74447c29d0137d1a6d4e5",
		webhook.Sign("s3cr3t", payload),
	)
	assert.Equal(t,
		"3c81cc9496e1c25250f6ccb85f697c1bb623e3480d6538ad8cb6a6648142777d",
		webhook.Sign("s3cr3t", nil),
	)
}

func TestSignatureHeaders(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1_700_000_000_123)
	payload := []byte(`{"a":1}`)

	t.Run("signed", func(t *testing.T) {
		t.Parallel()
		h := webhook.SignatureHeaders("s3cr3t", payload, at)
		require.Len(t, h, 2)
		assert.Equal(t, webhook.Sign("s3cr3t", payload), h[webhook.HeaderSignature])
		assert.Equal(t, "1700000000123", h[webhook.HeaderTimestamp])
	})

	t.Run("no secret", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, webhook.SignatureHeaders("", payload, at))
	})

	t.Run("signature independent of send time", func(t *testing.T) {
		t.Parallel()
		first := webhook.SignatureHeaders("s3cr3t", payload, at)
		later := webhook.SignatureHeaders("s3cr3t", payload, at.Add(time.Hour))
		assert.Equal(t, first[webhook.HeaderSignature], later[webhook.HeaderSignature])
		assert.NotEqual(t, first[webhook.HeaderTimestamp], later[webhook.HeaderTimestamp])
	})
}

func TestVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"evento":"PAGAMENTO_RECEBIDO"}`)
	sig := webhook.Sign("key", payload)

	assert.NoError(t, webhook.Verify("key", payload, sig))
	assert.ErrorIs(t, webhook.Verify("other", payload, sig), webhook.ErrSignatureMismatch)
	assert.ErrorIs(t, webhook.Verify("key", []byte(`{}`), sig), webhook.ErrSignatureMismatch)
	assert.ErrorIs(t, webhook.Verify("", payload, sig), webhook.ErrMissingSecret)
	assert.ErrorIs(t, webhook.Verify("key", payload, ""), webhook.ErrMissingSignature)
}
