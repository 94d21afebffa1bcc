package amap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a reverse geocoder over the AMap web service API.
type Client struct {
	BaseURL string
	Key     string
	HTTP    *http.Client
}

type regeoResp struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode struct {
		// formatted_address is an empty array when nothing matched
		FormattedAddress json.RawMessage `json:"formatted_address"`
	} `json:"regeocode"`
}

func (c *Client) ReverseResolve(ctx context.Context, lat, lng float64) (string, error) {
	if c.Key == "" {
		return "", errors.New("amap key not configured")
	}
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = "https://restapi.amap.com"
	}
	values := url.Values{}
	values.Set("key", c.Key)
	values.Set("location", strconv.FormatFloat(lng, 'f', 6, 64)+","+strconv.FormatFloat(lat, 'f', 6, 64))
	values.Set("extensions", "base")
	u := strings.TrimRight(base, "/") + "/v3/geocode/regeo?" + values.Encode()
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", errors.New(string(body))
	}
	var out regeoResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.Status != "1" {
		return "", errors.New(out.Info)
	}
	var addr string
	if err := json.Unmarshal(out.Regeocode.FormattedAddress, &addr); err != nil {
		return "", nil
	}
	return addr, nil
}
