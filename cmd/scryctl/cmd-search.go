package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type cmdSearch struct {
	endpointConfig
	Page     int  `long:"page" default:"1" description:"Result page to fetch"`
	PageSize int  `long:"page-size" default:"25" description:"Results per page"`
	JSON     bool `long:"json" description:"Print raw card JSON instead of a summary line per card"`
}

type searchCard struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ManaCost string   `json:"mana_cost"`
	TypeLine string   `json:"type_line"`
	Set      string   `json:"set_code"`
	Rarity   string   `json:"rarity"`
	Colors   []string `json:"colors"`
}

type searchResponse struct {
	Data       []searchCard `json:"data"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	TotalPages int64        `json:"total_pages"`
	HasMore    bool         `json:"has_more"`
}

func (cmd cmdSearch) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one query argument, got %d", len(args))
	}

	var params = url.Values{}
	params.Set("q", args[0])
	params.Set("page", fmt.Sprint(cmd.Page))
	params.Set("page_size", fmt.Sprint(cmd.PageSize))

	var result searchResponse
	var path = "/cards/search?" + params.Encode()
	if err := cmd.call(http.MethodGet, path, 60*time.Second, &result); err != nil {
		return err
	}

	for _, card := range result.Data {
		if cmd.JSON {
			var raw, _ = json.Marshal(card)
			fmt.Println(string(raw))
			continue
		}
		fmt.Printf("%-40s %-12s %-30s %s/%s\n",
			card.Name, card.ManaCost, card.TypeLine, card.Set, card.Rarity)
	}
	fmt.Printf("page %d of %d (%d cards total)\n", result.Page, result.TotalPages, result.Total)
	return nil
}
