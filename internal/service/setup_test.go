package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/db"
	"github.com/DLT11-dev/be-chat/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	users    *UserService
	sessions *SessionService
	messages *MessageService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("sqlite", ":memory:")
	require.NoError(t, err, "failed to open test db")
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := setupTestDB(t)
	tokens, err := auth.NewTokensFromLifetimes("test-secret", "15m", "7d")
	require.NoError(t, err)
	users := NewUserService(gdb, nil)
	return &fixture{
		db:       gdb,
		users:    users,
		sessions: NewSessionService(gdb, tokens, users),
		messages: NewMessageService(gdb, users),
	}
}

func (f *fixture) register(t *testing.T, name string) models.UserSummary {
	t.Helper()
	sum, err := f.users.Register(context.Background(), name, "password", name+"@example.com")
	require.NoError(t, err)
	return *sum
}

func (f *fixture) send(t *testing.T, from, to uint, content string) *MessageDTO {
	t.Helper()
	msg, err := f.messages.CreateMessage(context.Background(), from, NewMessage{Content: content, ReceiverID: to})
	require.NoError(t, err)
	// 保证 created_at 严格递增，排序断言才稳定。
	time.Sleep(2 * time.Millisecond)
	return msg
}

func contentOf(msgs []MessageDTO) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func seq(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}
