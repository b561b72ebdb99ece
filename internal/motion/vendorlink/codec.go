package vendorlink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// Wire format, one line per direction:
//
//	request:  OP <axes|-> <values|->\n     axes and values comma separated
//	response: OK\n
//	          OK V <v1,v2,...>\n           numeric payload
//	          OK F <0|1,0|1,...>\n         flag payload
//	          OK T <text>\n                text payload
//	          ERR <code>\n                 vendor error code

var opWire = map[transport.OpCode]string{
	transport.OpMoveAbs:     "MOV",
	transport.OpMoveRel:     "MVR",
	transport.OpHome:        "HOM",
	transport.OpDefineHome:  "DFH",
	transport.OpStop:        "HLT",
	transport.OpStopAll:     "STP",
	transport.OpPositions:   "POS",
	transport.OpMoving:      "MOT",
	transport.OpServo:       "SVO?",
	transport.OpEnableServo: "SVO",
	transport.OpVelocityGet: "VEL?",
	transport.OpVelocitySet: "VEL",
	transport.OpIdent:       "IDN?",
	transport.OpSerial:      "SSN?",
}

func encodeRequest(req transport.Request) ([]byte, error) {
	wire, ok := opWire[req.Op]
	if !ok {
		return nil, fmt.Errorf("vendorlink: unsupported op %q", req.Op)
	}

	axes := "-"
	if len(req.Axes) > 0 {
		axes = strings.Join(req.Axes, ",")
	}

	values := "-"
	if len(req.Values) > 0 {
		parts := make([]string, len(req.Values))
		for i, v := range req.Values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		values = strings.Join(parts, ",")
	}

	return []byte(wire + " " + axes + " " + values + "\n"), nil
}

func decodeResponse(op transport.OpCode, line string) (transport.Response, error) {
	line = strings.TrimRight(line, "\r\n")

	if code, ok := strings.CutPrefix(line, "ERR "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return transport.Response{}, fmt.Errorf("vendorlink: malformed error line %q", line)
		}
		return transport.Response{}, &transport.VendorError{Op: op, Code: n}
	}

	if line == "OK" {
		return transport.Response{}, nil
	}
	payload, ok := strings.CutPrefix(line, "OK ")
	if !ok {
		return transport.Response{}, fmt.Errorf("vendorlink: malformed response %q", line)
	}

	kind, body, _ := strings.Cut(payload, " ")
	switch kind {
	case "V":
		parts := strings.Split(body, ",")
		values := make([]float64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return transport.Response{}, fmt.Errorf("vendorlink: bad value %q in %q", p, line)
			}
			values[i] = v
		}
		return transport.Response{Values: values}, nil

	case "F":
		parts := strings.Split(body, ",")
		flags := make([]bool, len(parts))
		for i, p := range parts {
			switch strings.TrimSpace(p) {
			case "1":
				flags[i] = true
			case "0":
				flags[i] = false
			default:
				return transport.Response{}, fmt.Errorf("vendorlink: bad flag %q in %q", p, line)
			}
		}
		return transport.Response{Flags: flags}, nil

	case "T":
		return transport.Response{Text: body}, nil

	default:
		return transport.Response{}, fmt.Errorf("vendorlink: unknown payload kind %q in %q", kind, line)
	}
}
