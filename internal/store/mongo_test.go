package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"watchparty/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("skip: MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.ConnectMongo(ctx, uri, "watchparty_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	runStoreContract(t, s)
}
