package main

import (
	"fmt"
	"net/http"
	"time"
)

type cmdStats struct {
	endpointConfig
}

type statsResponse struct {
	TotalCards        int64 `json:"total_cards"`
	TotalCacheEntries int64 `json:"total_cache_entries"`
}

func (cmd cmdStats) Execute(_ []string) error {
	var stats statsResponse
	if err := cmd.call(http.MethodGet, "/stats", 10*time.Second, &stats); err != nil {
		return err
	}
	fmt.Printf("cards:             %d\n", stats.TotalCards)
	fmt.Printf("cached result sets: %d\n", stats.TotalCacheEntries)
	return nil
}
