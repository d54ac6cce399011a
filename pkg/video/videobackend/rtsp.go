package videobackend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/tauraamui/xerror"
)

const defaultRTSPPort = 554

var supportedSchemes = []string{"rtsp", "rtsps"}

// StreamURL builds the rtsp address of a camera stream.
func StreamURL(username, password, host string, port int, path string) string {
	if port <= 0 {
		port = defaultRTSPPort
	}
	if len(path) > 0 && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: "rtsp",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	if len(username) > 0 {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}

// RedactURL hides credentials in addresses which end up in logs.
func RedactURL(addr string) string {
	u, err := url.Parse(addr)
	if err != nil || u.User == nil {
		return addr
	}
	return u.Redacted()
}

func processURL(addr string) (string, error) {
	if len(addr) == 0 {
		return "", errors.New("connection address is undefined")
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}

	if !containsString(u.Scheme, supportedSchemes) {
		return "", fmt.Errorf("scheme: %s is unsupported", u.Scheme)
	}

	if len(u.Port()) == 0 {
		return net.JoinHostPort(u.Hostname(), strconv.Itoa(defaultRTSPPort)), nil
	}

	return u.Host, nil
}

func isRTSP(addr string) bool {
	u, err := url.Parse(addr)
	return err == nil && containsString(u.Scheme, supportedSchemes)
}

func containsString(str string, strs []string) bool {
	for _, s := range strs {
		if str == s {
			return true
		}
	}
	return false
}

// probe dials the stream host so an unreachable camera fails fast, before
// a decode process is spawned for it.
var probe = func(ctx context.Context, addr string) error {
	hostPort, err := processURL(addr)
	if err != nil {
		return err
	}

	d := &net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return xerror.Errorf("stream host %s unreachable: %w", hostPort, err)
	}
	return conn.Close()
}
