// Package console is a line-oriented bench console onto the ui host. Each
// line is "name" or "name payload", the payload in YAML or JSON syntax:
//
//	arm
//	inmv {id: 1, type: 1, duration: 500, points: [{x: 0}, {x: 1000}]}
//	stmv
//	status
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/project/ui"
	"github.com/tarm/serial"
	"gopkg.in/yaml.v3"
)

const maxLine = 4096

type Console struct {
	host *ui.Host
	in   io.Reader
	out  io.Writer
}

func NewConsole(host *ui.Host, in io.Reader, out io.Writer) *Console {
	self := &Console{}
	self.host = host
	self.in = in
	self.out = out
	return self
}

// OpenSerial opens the console link with blocking reads.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	cfg := &serial.Config{Name: port, Baud: baud}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open console %s: %w", port, err)
	}
	return p, nil
}

// Serve executes lines until the input ends or ctx is cancelled. A
// cancelled context is only noticed between lines.
func (self *Console) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(self.in)
	scanner.Buffer(make([]byte, 0, 256), maxLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := io.WriteString(self.out, self.Execute(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Execute runs one line and returns the reply, newline terminated.
func (self *Console) Execute(line string) string {
	name, payload, _ := strings.Cut(strings.TrimSpace(line), " ")
	payload = strings.TrimSpace(payload)
	logger.Debugf("console: %s %s", name, payload)

	switch {
	case name == "status":
		var b strings.Builder
		if err := self.host.Report(&b); err != nil {
			return fail(err)
		}
		return b.String()
	case name == "help":
		return strings.Join(self.host.Names(), " ") + "\n"
	case self.host.IsFunc(name):
		if payload != "" {
			return fail(fmt.Errorf("%s takes no payload", name))
		}
		if err := self.host.Call(name); err != nil {
			return fail(err)
		}
		return "ok\n"
	case payload != "":
		if err := self.host.Write(name, ui.YAML(payload)); err != nil {
			return fail(err)
		}
		return "ok\n"
	}

	v, err := self.host.Read(name)
	if err != nil {
		return fail(err)
	}
	d, err := yaml.Marshal(map[string]interface{}{name: v})
	if err != nil {
		return fail(err)
	}
	return string(d)
}

func fail(err error) string {
	return "error: " + err.Error() + "\n"
}
