package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"cadence/internal/api"
	"cadence/internal/daemon"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/recovery"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Cadence", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun cadence daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func convertSnapshots(snaps []library.Snapshot) []api.SnapshotSummary {
	if len(snaps) == 0 {
		return nil
	}
	out := make([]api.SnapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, api.FromSnapshot(snap))
	}
	return out
}

func convertRecoveryReport(report recovery.Report) RecoveryStatusResponse {
	return RecoveryStatusResponse{
		State:                      string(report.State),
		Enabled:                    report.Enabled,
		ConsecutiveFailures:        report.ConsecutiveFailures,
		BackoffMultiplier:          report.BackoffMultiplier,
		NextRecoveryAvailable:      report.NextRecoveryAvailable,
		AttemptCount:               report.AttemptCount,
		LastAttempt:                report.LastAttempt,
		RequiresManualIntervention: report.RequiresManualIntervention,
		MonitoringActive:           report.MonitoringActive,
	}
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockPath
	resp.Processing = status.Processing
	resp.Library = api.FromProgress(status.Progress)
	return nil
}

func (s *service) ProcessStart(req ProcessStartRequest, resp *ProcessStartResponse) error {
	s.log().Debug("processing start requested", logging.Int("limit", req.Limit))
	queued, started := s.daemon.StartProcessing(s.ctx, req.Limit)
	resp.Queued = queued
	resp.Started = started
	switch {
	case queued == 0:
		resp.Message = "no tracks need analysis"
	case !started:
		resp.Message = "worker pool is already running"
	default:
		resp.Message = fmt.Sprintf("processing %d tracks", queued)
		s.log().Info("processing started via IPC",
			logging.String(logging.FieldEventType, "processing_start"),
			logging.Int("queued", queued))
	}
	return nil
}

func (s *service) ProcessStop(_ ProcessStopRequest, resp *ProcessStopResponse) error {
	s.log().Debug("processing stop requested")
	resp.Stopped = s.daemon.StopProcessing()
	s.log().Info("processing stopped via IPC",
		logging.String(logging.FieldEventType, "processing_stop"))
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	report := s.daemon.Health(s.ctx)
	resp.Status = string(report.Status)
	resp.Timestamp = report.Timestamp
	resp.Progress = api.FromProgress(report.Progress)
	resp.ProcessingRate = report.ProcessingRate
	resp.EstimatedCompletion = report.EstimatedCompletion
	resp.Stalled = report.Stalled
	resp.ConsecutiveStalls = report.ConsecutiveStalls
	resp.Anomalies = report.Anomalies
	resp.Recommendations = report.Recommendations
	resp.RecentHistory = convertSnapshots(report.RecentHistory)
	return nil
}

func (s *service) Stall(_ StallRequest, resp *StallResponse) error {
	analysis := s.daemon.StallAnalysis(s.ctx)
	resp.Indicators = analysis.Indicators
	resp.PendingTracks = analysis.PendingTracks
	resp.AnalyzingTracks = analysis.AnalyzingTracks
	resp.TotalTracks = analysis.TotalTracks
	resp.Probability = analysis.Probability
	resp.RecommendedAction = analysis.RecommendedAction
	resp.Factors = analysis.Factors
	resp.RecentHistory = convertSnapshots(analysis.RecentHistory)
	return nil
}

func (s *service) RecoveryStatus(_ RecoveryStatusRequest, resp *RecoveryStatusResponse) error {
	*resp = convertRecoveryReport(s.daemon.RecoveryStatus())
	return nil
}

func (s *service) RecoveryHistory(req RecoveryHistoryRequest, resp *RecoveryHistoryResponse) error {
	attempts := s.daemon.RecoveryHistory(req.Limit)
	resp.Attempts = make([]RecoveryAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, RecoveryAttempt{
			Timestamp:    attempt.Timestamp,
			Reason:       attempt.Reason,
			Success:      attempt.Success,
			ErrorMessage: attempt.ErrorMessage,
			Duration:     attempt.Duration,
		})
	}
	return nil
}

func (s *service) ForceRecovery(_ ForceRecoveryRequest, resp *ForceRecoveryResponse) error {
	s.log().Info("forced recovery requested",
		logging.String(logging.FieldEventType, "recovery_forced"))
	resp.Success = s.daemon.ForceRecovery(s.ctx)
	return nil
}

func (s *service) ResetRecoveryFailures(_ ResetRecoveryRequest, resp *ResetRecoveryResponse) error {
	s.daemon.ResetRecoveryFailures()
	resp.Reset = true
	s.log().Info("recovery failure count reset",
		logging.String(logging.FieldEventType, "recovery_reset"))
	return nil
}

func (s *service) TrackList(req TrackListRequest, resp *TrackListResponse) error {
	tracks, err := s.daemon.ListTracks(s.ctx, req.Status, req.Limit)
	if err != nil {
		return err
	}
	resp.Tracks = make([]api.TrackSummary, 0, len(tracks))
	for _, track := range tracks {
		if track == nil {
			continue
		}
		resp.Tracks = append(resp.Tracks, api.FromTrack(track))
	}
	return nil
}

func (s *service) TrackDescribe(req TrackDescribeRequest, resp *TrackDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid track id %d", req.ID)
	}
	track, features, err := s.daemon.DescribeTrack(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Track = api.FromTrack(track)
	resp.Features = api.FeaturePairs(features)
	return nil
}

func (s *service) TrackRetry(req TrackRetryRequest, resp *TrackRetryResponse) error {
	s.log().Debug("track retry requested", logging.Int("track_count", len(req.IDs)))
	updated, err := s.daemon.RetryErrored(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("tracks queued for retry",
		logging.String(logging.FieldEventType, "track_retry"),
		logging.Int("updated_count", updated))
	return nil
}

func (s *service) TrackReset(_ TrackResetRequest, resp *TrackResetResponse) error {
	s.log().Debug("track reset stuck requested")
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("stuck tracks reset",
		logging.String(logging.FieldEventType, "track_reset_stuck"),
		logging.Int("updated_count", updated))
	return nil
}

func (s *service) TrackClear(req TrackClearRequest, resp *TrackClearResponse) error {
	s.log().Debug("track clear requested", logging.Int("status_count", len(req.Statuses)))
	removed, err := s.daemon.ClearTracks(s.ctx, req.Statuses)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("tracks cleared",
		logging.String(logging.FieldEventType, "track_clear"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) Scan(_ ScanRequest, resp *ScanResponse) error {
	s.log().Debug("library scan requested")
	result, err := s.daemon.Scan(s.ctx)
	if err != nil {
		return err
	}
	resp.Scanned = result.Scanned
	resp.Added = result.Added
	resp.Known = result.Known
	return nil
}

func (s *service) AddFile(req AddFileRequest, resp *AddFileResponse) error {
	if req.Path == "" {
		return errors.New("add file requires a path")
	}
	track, err := s.daemon.AddFile(s.ctx, req.Path)
	if err != nil {
		return err
	}
	resp.Track = api.FromTrack(track)
	s.log().Info("file registered for analysis",
		logging.String(logging.FieldEventType, "file_added"),
		logging.Int64(logging.FieldTrackID, track.ID))
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalTracks = health.TotalTracks
	resp.Error = health.Error
	return err
}
