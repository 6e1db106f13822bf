package uiautomator2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoSuchElement is returned when a find request matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// Element represents a UI element on the device.
type Element struct {
	id     string
	client *Client
}

// ID returns the element ID.
func (e *Element) ID() string {
	return e.id
}

// FindElement finds a single element. A miss is reported as ErrNoSuchElement.
func (c *Client) FindElement(ctx context.Context, strategy, selector string) (*Element, error) {
	req := FindElementRequest{
		Strategy: strategy,
		Selector: selector,
	}

	data, err := c.request(ctx, "POST", c.sessionPath("/element"), req)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) && serverErr.IsNoSuchElement() {
			return nil, fmt.Errorf("%w: %s=%s", ErrNoSuchElement, strategy, selector)
		}
		return nil, err
	}

	var resp struct {
		Value struct {
			ELEMENT string `json:"ELEMENT"`
			W3C     string `json:"element-6066-11e4-a52e-4f735466cecf"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse element response: %w", err)
	}

	id := resp.Value.ELEMENT
	if id == "" {
		id = resp.Value.W3C
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s=%s", ErrNoSuchElement, strategy, selector)
	}

	return &Element{id: id, client: c}, nil
}

// Click taps the element.
func (e *Element) Click(ctx context.Context) error {
	return e.client.ClickElement(ctx, e.id)
}

// ClickElement taps the element with the given ID.
func (c *Client) ClickElement(ctx context.Context, elementID string) error {
	_, err := c.request(ctx, "POST", c.sessionPath("/element/"+elementID+"/click"), nil)
	return err
}
