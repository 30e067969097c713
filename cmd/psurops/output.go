package main

import (
	"encoding/json"
	"fmt"
	"io"

	"psurops/internal/dispatch"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// responseError turns a failed dispatcher response into a command error.
func responseError(op string, resp dispatch.Response) error {
	if resp.OK() {
		return nil
	}
	msg, _ := resp["error"].(string)
	return fmt.Errorf("%s failed (%s): %s", op, resp.Code(), msg)
}

// decode round-trips a response through JSON into a typed view.
func decode(resp dispatch.Response, v interface{}) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
