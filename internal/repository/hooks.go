// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"time"

	"github.com/inboxforge/mailpipe/pkg/log"
)

type contextKey string

const queryStartKey contextKey = "query_start"

// Hooks satisfies sqlhooks.Hooks, giving every statement structured
// duration logging without littering call sites with timers.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %q", query, args)
	return context.WithValue(ctx, queryStartKey, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryStartKey).(time.Time); ok {
		log.Debugf("sql took: %s", time.Since(begin))
	}
	return ctx, nil
}

func (h *Hooks) OnError(ctx context.Context, err error, query string, args ...interface{}) error {
	log.Warnf("sql error on %q: %v", query, err)
	return err
}
