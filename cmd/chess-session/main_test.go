package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/internal/store"
)

func TestColorPersisterConcurrentDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewStore(rdb, time.Hour, time.Hour)

	p := &colorPersister{
		store:  st,
		keyFn:  func() string { return "dev1" },
		logger: zap.NewNop(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		color := domain.White
		if i%2 == 1 {
			color = domain.Black
		}
		wg.Add(1)
		go func(c domain.Color) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.SessionChanged(session.View{HumanColor: c})
			}
		}(color)
	}
	wg.Wait()

	prefs, err := st.LoadPrefs(context.Background(), "dev1")
	if err != nil || prefs == nil {
		t.Fatalf("assigned color never persisted: %v", err)
	}
	if prefs.AssignedColor != domain.White && prefs.AssignedColor != domain.Black {
		t.Fatalf("assigned color = %q", prefs.AssignedColor)
	}
}
