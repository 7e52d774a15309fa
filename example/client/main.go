// Command client calls the org.example.calc service started by the example
// command over its Unix socket.
package main

import (
	"context"
	"errors"
	"log"

	"go.varlink.dev/varlink"
)

func main() {
	ctx := context.Background()
	c, err := varlink.Dial(ctx, "unix:./org.example.sock")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	var mulOut struct {
		Result float64 `json:"result"`
	}
	if err := c.Do("org.example.calc.Multiply", map[string]float64{"a": 6, "b": 7}, &mulOut); err != nil {
		log.Fatal(err)
	}
	log.Printf("6 * 7 = %v", mulOut.Result)

	var divOut struct {
		Result float64 `json:"result"`
	}
	err = c.Do("org.example.calc.Divide", map[string]float64{"a": 1, "b": 0}, &divOut)
	var verr *varlink.Error
	if errors.As(err, &verr) {
		log.Printf("1 / 0 failed as expected: %s", verr.Name)
	} else if err != nil {
		log.Fatal(err)
	}
}
