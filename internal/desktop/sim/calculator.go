// Copyright 2025 Joseph Cumines

package sim

import (
	"strconv"
	"strings"
)

// calculator is the standard-mode state machine behind the simulated
// Calculator buttons.
type calculator struct {
	entry   string
	op      string
	acc     float64
	hasAcc  bool
	errored bool
}

func (c *calculator) press(key string) {
	if c.errored && key != "c" {
		return
	}
	switch key {
	case "c":
		*c = calculator{}
	case "+", "-", "*", "/":
		c.apply()
		c.op = key
	case "=":
		c.apply()
		c.op = ""
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			if c.entry == "0" {
				c.entry = ""
			}
			c.entry += key
		}
	}
}

func (c *calculator) apply() {
	if c.entry == "" {
		return
	}
	v, _ := strconv.ParseFloat(c.entry, 64)
	c.entry = ""
	if !c.hasAcc || c.op == "" {
		c.acc, c.hasAcc = v, true
		return
	}
	switch c.op {
	case "+":
		c.acc += v
	case "-":
		c.acc -= v
	case "*":
		c.acc *= v
	case "/":
		if v == 0 {
			c.errored = true
			return
		}
		c.acc /= v
	}
}

func (c *calculator) display() string {
	switch {
	case c.errored:
		return "Cannot divide by zero"
	case c.entry != "":
		return c.entry
	case c.hasAcc:
		s := strconv.FormatFloat(c.acc, 'f', -1, 64)
		if strings.Contains(s, "e") {
			s = strconv.FormatFloat(c.acc, 'g', 12, 64)
		}
		return s
	default:
		return "0"
	}
}
