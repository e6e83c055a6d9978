package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start its background services.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Cadence.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop its background services.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Cadence.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Cadence.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessStart loads the analysis backlog and starts the worker pool.
func (c *Client) ProcessStart(limit int) (*ProcessStartResponse, error) {
	var resp ProcessStartResponse
	req := ProcessStartRequest{Limit: limit}
	if err := c.client.Call("Cadence.ProcessStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessStop stops the worker pool.
func (c *Client) ProcessStop() (*ProcessStopResponse, error) {
	var resp ProcessStopResponse
	if err := c.client.Call("Cadence.ProcessStop", ProcessStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health retrieves the composite health report.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.client.Call("Cadence.Health", HealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stall retrieves the stall diagnostic view.
func (c *Client) Stall() (*StallResponse, error) {
	var resp StallResponse
	if err := c.client.Call("Cadence.Stall", StallRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecoveryStatus retrieves recovery controller state.
func (c *Client) RecoveryStatus() (*RecoveryStatusResponse, error) {
	var resp RecoveryStatusResponse
	if err := c.client.Call("Cadence.RecoveryStatus", RecoveryStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecoveryHistory retrieves recent recovery attempts.
func (c *Client) RecoveryHistory(limit int) (*RecoveryHistoryResponse, error) {
	var resp RecoveryHistoryResponse
	req := RecoveryHistoryRequest{Limit: limit}
	if err := c.client.Call("Cadence.RecoveryHistory", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceRecovery triggers an immediate recovery attempt.
func (c *Client) ForceRecovery() (*ForceRecoveryResponse, error) {
	var resp ForceRecoveryResponse
	if err := c.client.Call("Cadence.ForceRecovery", ForceRecoveryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetRecoveryFailures clears recovery escalation state.
func (c *Client) ResetRecoveryFailures() (*ResetRecoveryResponse, error) {
	var resp ResetRecoveryResponse
	if err := c.client.Call("Cadence.ResetRecoveryFailures", ResetRecoveryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackList returns tracks optionally filtered by status.
func (c *Client) TrackList(status string, limit int) (*TrackListResponse, error) {
	var resp TrackListResponse
	req := TrackListRequest{Status: status, Limit: limit}
	if err := c.client.Call("Cadence.TrackList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackDescribe returns details for a single track.
func (c *Client) TrackDescribe(id int64) (*TrackDescribeResponse, error) {
	var resp TrackDescribeResponse
	req := TrackDescribeRequest{ID: id}
	if err := c.client.Call("Cadence.TrackDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackRetry resets errored tracks back to pending.
func (c *Client) TrackRetry(ids []int64) (*TrackRetryResponse, error) {
	var resp TrackRetryResponse
	req := TrackRetryRequest{IDs: ids}
	if err := c.client.Call("Cadence.TrackRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackReset releases tracks wedged in analyzing back to pending.
func (c *Client) TrackReset() (*TrackResetResponse, error) {
	var resp TrackResetResponse
	if err := c.client.Call("Cadence.TrackReset", TrackResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackClear removes tracks in the given statuses, or all tracks when none
// are given.
func (c *Client) TrackClear(statuses []string) (*TrackClearResponse, error) {
	var resp TrackClearResponse
	req := TrackClearRequest{Statuses: statuses}
	if err := c.client.Call("Cadence.TrackClear", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan walks the music directory for new audio files.
func (c *Client) Scan() (*ScanResponse, error) {
	var resp ScanResponse
	if err := c.client.Call("Cadence.Scan", ScanRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddFile registers a single audio file for analysis.
func (c *Client) AddFile(path string) (*AddFileResponse, error) {
	var resp AddFileResponse
	req := AddFileRequest{Path: path}
	if err := c.client.Call("Cadence.AddFile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Cadence.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
