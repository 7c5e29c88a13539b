package transport

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/store"
)

// openStore opens a fresh store holding recs.
func openStore(t *testing.T, name string, recs ...history.Record) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), name+".db"), store.WithHostname(name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, r := range recs {
		_, err := s.Insert(context.Background(), r)
		require.NoError(t, err)
	}
	return s
}

// keysOf returns the natural keys held by s.
func keysOf(t *testing.T, s *store.Store) map[history.NaturalKey]bool {
	t.Helper()
	recs, err := s.Query(context.Background(), store.Filter{})
	require.NoError(t, err)
	set := map[history.NaturalKey]bool{}
	for _, r := range recs {
		set[r.Key()] = true
	}
	return set
}

func countOf(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}

type exchange struct {
	client, server       Result
	clientErr, serverErr error
}

// runPair connects an initiating and a responding peer with in-memory pipes
// and runs one exchange.
func runPair(t *testing.T, client, server *Peer, mode Mode) exchange {
	t.Helper()
	ctx := context.Background()

	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := server.Respond(ctx, toServerR, toClientW)
		toClientW.Close()
		toServerR.Close()
		done <- outcome{res, err}
	}()

	var ex exchange
	ex.client, ex.clientErr = client.Initiate(ctx, toClientR, toServerW, mode)
	toServerW.Close()
	toClientR.Close()

	out := <-done
	ex.server, ex.serverErr = out.res, out.err
	return ex
}
