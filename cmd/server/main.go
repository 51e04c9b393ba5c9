package main

import (
	"context"
	"log"

	httpapi "kingchu-bridge/internal/api/http"
	"kingchu-bridge/internal/api/ws"
	"kingchu-bridge/internal/bridge"
	"kingchu-bridge/internal/config"
	"kingchu-bridge/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var st store.Store = store.NewMemoryStore()
	var rs *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		rs, err = store.NewRedisStore(ctx, cfg.RedisURL, cfg.StateTTL)
		if err != nil {
			// Unreachable Redis disables durable mode and the bridge for
			// this process; local fanout still has to work.
			log.Printf("redis unavailable, running in-memory only: %v", err)
		} else {
			st = rs
		}
	}

	hub := ws.NewHub(st, cfg.MaxPlayers)

	bridged := false
	if rs != nil {
		br, err := bridge.New(ctx, rs.Client(), hub)
		if err != nil {
			log.Printf("bridge disabled: %v", err)
		} else {
			hub.SetPublisher(br)
			bridged = true
			defer br.Close()
		}
	}

	r := httpapi.SetupRouter(cfg, st, hub, bridged)

	log.Printf("king chu bridge listening on %s (bridge=%v)", cfg.HTTPAddr(), bridged)
	if err := r.Run(cfg.HTTPAddr()); err != nil {
		log.Fatal(err)
	}
}
