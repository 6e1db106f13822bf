package uiautomator2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Back presses the back button.
func (c *Client) Back(ctx context.Context) error {
	_, err := c.request(ctx, "POST", c.sessionPath("/back"), nil)
	return err
}

// PressKeyCode presses an Android key code.
func (c *Client) PressKeyCode(ctx context.Context, keyCode int) error {
	_, err := c.request(ctx, "POST", c.sessionPath("/appium/device/press_keycode"), KeyCodeRequest{KeyCode: keyCode})
	return err
}

// Home presses the home button.
func (c *Client) Home(ctx context.Context) error {
	return c.PressKeyCode(ctx, KeyCodeHome)
}

// Source returns the UI hierarchy as XML.
func (c *Client) Source(ctx context.Context) (string, error) {
	data, err := c.request(ctx, "GET", c.sessionPath("/source"), nil)
	if err != nil {
		return "", err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}

	source, _ := resp.Value.(string)
	return source, nil
}

// Screenshot captures the screen as PNG.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := c.request(ctx, "GET", c.sessionPath("/screenshot"), nil)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	b64, ok := resp.Value.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected screenshot response")
	}

	return base64.StdEncoding.DecodeString(b64)
}

// GetDeviceInfo returns device details reported by the server.
func (c *Client) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	data, err := c.request(ctx, "GET", c.sessionPath("/appium/device/info"), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value DeviceInfo `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	return &resp.Value, nil
}
