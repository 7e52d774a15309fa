// Command example runs a small Varlink service implementing
// org.example.calc: Multiply and Divide over 64-bit floats, with Divide
// failing with a DivisionByZero error on a zero divisor.
package main

import (
	"encoding/json"
	"log"
	"syscall"

	"go.varlink.dev/varlink"
	"go.varlink.dev/varlink/transport"
)

const calcIDL = `interface org.example.calc

method Multiply(a: float, b: float) -> (result: float)

method Divide(a: float, b: float) -> (result: float)

error DivisionByZero ()
`

type calcHandler struct{}

type multiplyIn struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type divideIn struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (calcHandler) Dispatch(call *varlink.Call, member string) error {
	switch member {
	case "Multiply":
		var in multiplyIn
		if err := json.Unmarshal(call.Parameters(), &in); err != nil {
			return call.ReplyInvalidParameter("parameters")
		}
		return call.Reply(map[string]float64{"result": in.A * in.B})

	case "Divide":
		var in divideIn
		if err := json.Unmarshal(call.Parameters(), &in); err != nil {
			return call.ReplyInvalidParameter("parameters")
		}
		if in.B == 0 {
			return call.ReplyError("org.example.calc.DivisionByZero", nil)
		}
		return call.Reply(map[string]float64{"result": in.A / in.B})

	default:
		return call.ReplyMethodNotFound(member)
	}
}

func main() {
	reg := varlink.NewRegistry(varlink.RegistryOptions{
		Vendor:  "go.varlink.dev",
		Product: "usage example",
		Version: "1.0",
		URL:     "https://go.varlink.dev",
	})
	reg.Add(&varlink.RegistryInterface{Name: "org.example.calc", Definition: calcIDL}, calcHandler{})

	const sockPath = "./org.example.sock"
	_ = syscall.Unlink(sockPath)

	ln, err := transport.Listen("unix:" + sockPath)
	if err != nil {
		log.Fatal(err)
	}
	defer ln.Close()

	log.Printf("listening on unix:%s", sockPath)
	l := varlink.NewListener(reg)
	if err := l.Serve(ln); err != nil {
		log.Fatal(err)
	}
}
