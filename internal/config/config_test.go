package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("ADMIN_CHAT_ID", "42")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingBotToken)
}

func TestLoadRequiresAdminID(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("ADMIN_CHAT_ID", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingAdminID)
}

func TestLoadRejectsBadAdminID(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")

	for _, bad := range []string{"abc", "0", "12.5"} {
		t.Setenv("ADMIN_CHAT_ID", bad)
		_, err := Load()
		assert.Error(t, err, "ADMIN_CHAT_ID %q", bad)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("ADMIN_CHAT_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.BotToken)
	assert.Equal(t, int64(42), cfg.AdminChatID)
	assert.Equal(t, "order.events", cfg.OutboxTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.ProvisionerMock)
	assert.Contains(t, cfg.PaymentDetailsUK, "UK")
	assert.Contains(t, cfg.PaymentDetailsDE, "DE")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("ADMIN_CHAT_ID", "42")
	t.Setenv("PAYMENT_DETAILS_UK", "Sort 00-00-00 Acct 1234")
	t.Setenv("PROVISIONER_MOCK", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Sort 00-00-00 Acct 1234", cfg.PaymentDetailsUK)
	assert.False(t, cfg.ProvisionerMock)
}
