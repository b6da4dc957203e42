// Package ntrip is a minimal NTRIP client: source-table discovery and a
// relay that copies a correction stream into the GPS receiver.
package ntrip

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultUserAgent   = "NTRIP gpsbridge/1.0"
	DefaultDialTimeout = 10 * time.Second
	DefaultReadTimeout = 30 * time.Second
	DefaultGGAInterval = 15 * time.Second

	sourceTableOK  = "SOURCETABLE 200 OK"
	endSourceTable = "ENDSOURCETABLE"
)

type Config struct {
	// Addr is the caster host:port.
	Addr     string
	Username string
	Password string

	UserAgent   string
	DialTimeout time.Duration
	// ReadTimeout bounds each read. A stream that stays silent this long is
	// treated as dead.
	ReadTimeout time.Duration
	GGAInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.GGAInterval <= 0 {
		c.GGAInterval = DefaultGGAInterval
	}
	return c
}

type Client struct {
	cfg  Config
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Client{cfg: cfg, dial: d.DialContext}
}

func (c *Client) Addr() string { return c.cfg.Addr }

// Request builds the GET request for mount. An empty mount asks for the
// source table.
func (c *Client) Request(mount string) []byte {
	var b strings.Builder
	b.WriteString("GET /" + strings.TrimPrefix(mount, "/") + " HTTP/1.1\r\n")
	b.WriteString("User-Agent: " + c.cfg.UserAgent + "\r\n")
	if c.cfg.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
		b.WriteString("Authorization: Basic " + auth + "\r\n")
	}
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// open dials the caster and sends the request for mount.
func (c *Client) open(ctx context.Context, mount string) (net.Conn, error) {
	if strings.TrimSpace(c.cfg.Addr) == "" {
		return nil, errors.New("ntrip: caster address is empty")
	}
	conn, err := c.dial(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("ntrip: dial %s: %w", c.cfg.Addr, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout))
	if _, err := conn.Write(c.Request(mount)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ntrip: send request: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return conn, nil
}

// GetSourceTable fetches and parses the caster's source table. It returns
// (nil, nil) when the caster answers with anything other than
// "SOURCETABLE 200 OK". The connection is always closed before returning.
func (c *Client) GetSourceTable(ctx context.Context) (*SourceTable, error) {
	conn, err := c.open(ctx, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	br := bufio.NewReader(conn)
	first, err := br.ReadString('\n')
	if err != nil && first == "" {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ntrip: read source table: %w", err)
	}
	if strings.TrimRight(first, "\r\n") != sourceTableOK {
		log.WithFields(log.Fields{"addr": c.cfg.Addr, "status": strings.TrimSpace(first)}).Debug("ntrip: no source table")
		return nil, nil
	}

	table := &SourceTable{}
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == endSourceTable {
			break
		}
		table.ParseLine(line)
		if err != nil {
			// Casters that close without ENDSOURCETABLE still sent a usable table.
			var ne net.Error
			if errors.Is(err, io.EOF) || (errors.As(err, &ne) && ne.Timeout()) {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("ntrip: read source table: %w", err)
		}
	}
	log.WithFields(log.Fields{
		"addr":     c.cfg.Addr,
		"streams":  len(table.Streams),
		"casters":  len(table.Casters),
		"networks": len(table.Networks),
	}).Debug("ntrip: source table received")
	return table, nil
}
