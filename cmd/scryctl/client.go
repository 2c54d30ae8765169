package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

// endpointConfig is embedded by every subcommand.
type endpointConfig struct {
	Endpoint string `long:"endpoint" env:"SCRYCACHE_ENDPOINT" default:"http://localhost:8080" description:"Base URL of the scrycache instance"`
}

// apiEnvelope mirrors the service's response envelope.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// getJSON fetches path and decodes the raw response body into out.
// Used for the health endpoints, which are not enveloped.
func (c endpointConfig) getJSON(path string, timeout time.Duration, out interface{}) (int, error) {
	var client = &http.Client{Timeout: timeout}
	var resp, err = client.Get(strings.TrimRight(c.Endpoint, "/") + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

// call performs a request against an enveloped endpoint and decodes the
// data half into out. Envelope errors come back as Go errors.
func (c endpointConfig) call(method, path string, timeout time.Duration, out interface{}) error {
	var client = &http.Client{Timeout: timeout}
	var url = strings.TrimRight(c.Endpoint, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err = json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, truncate(body))
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		if err = json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
