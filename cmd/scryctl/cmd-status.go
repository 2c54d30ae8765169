package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
)

var green = color.New(color.FgGreen).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()
var yellow = color.New(color.FgYellow).SprintFunc()

type cmdStatus struct {
	endpointConfig
}

type readyResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	InstanceID    string            `json:"instance_id"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type overviewResponse struct {
	Service               string  `json:"service"`
	Version               string  `json:"version"`
	InstanceID            string  `json:"instance_id"`
	CardsTotal            int64   `json:"cards_total"`
	CacheEntriesTotal     int64   `json:"cache_entries_total"`
	BulkLastImport        *string `json:"bulk_last_import"`
	BulkReloadRecommended bool    `json:"bulk_reload_recommended"`
}

func (cmd cmdStatus) Execute(_ []string) error {
	var ready readyResponse
	var status, err = cmd.getJSON("/health/ready", 10*time.Second, &ready)
	if err != nil {
		fmt.Printf("status:   %s (%s)\n", red("unreachable"), err)
		return err
	}

	if status == http.StatusOK {
		fmt.Printf("status:   %s\n", green(ready.Status))
	} else {
		fmt.Printf("status:   %s\n", red(ready.Status))
	}
	fmt.Printf("service:  %s %s\n", ready.Service, ready.Version)
	fmt.Printf("instance: %s\n", ready.InstanceID)
	fmt.Printf("uptime:   %s\n", (time.Duration(ready.UptimeSeconds) * time.Second).String())
	for name, state := range ready.Checks {
		if state == "ok" {
			fmt.Printf("check:    %s %s\n", name, green(state))
		} else {
			fmt.Printf("check:    %s %s\n", name, red(state))
		}
	}

	var overview overviewResponse
	if err = cmd.call(http.MethodGet, "/api/admin/stats/overview", 10*time.Second, &overview); err != nil {
		return err
	}
	fmt.Printf("cards:    %d\n", overview.CardsTotal)
	if overview.BulkLastImport != nil {
		fmt.Printf("imported: %s\n", *overview.BulkLastImport)
	} else {
		fmt.Printf("imported: %s\n", yellow("never"))
	}
	if overview.BulkReloadRecommended {
		fmt.Printf("snapshot: %s\n", yellow("reload recommended"))
	} else {
		fmt.Printf("snapshot: %s\n", green("fresh"))
	}
	return nil
}
