package daemon

import (
	"context"
	"os"

	"coind/internal/ipc"
	"coind/internal/logging"
)

// Status reports the running node for the control service.
func (d *Daemon) Status(ctx context.Context) ipc.StatusResponse {
	resp := ipc.StatusResponse{
		PID:               os.Getpid(),
		RunID:             d.runID,
		StartedAt:         d.startedAt,
		ShutdownRequested: d.coord.Requested(),
	}
	for _, r := range d.Reports() {
		step := ipc.StepStatus{Name: r.Step, Outcome: r.Outcome.String(), ElapsedMS: r.Elapsed.Milliseconds()}
		if r.Err != nil {
			step.Error = r.Err.Error()
		}
		resp.Steps = append(resp.Steps, step)
	}
	if d.group != nil {
		resp.Workers = d.group.Running()
	}
	s := d.settings
	if s == nil {
		return resp
	}
	resp.Network = string(s.Network)
	resp.DataDir = s.DataDir

	if d.index != nil {
		height, tip := d.index.Tip()
		resp.Height = height
		resp.Tip = tip.String()
	}
	if d.listeners != nil {
		for _, addr := range d.listeners.Addrs() {
			resp.Listeners = append(resp.Listeners, addr.String())
		}
		resp.InboundPeers = d.listeners.Active()
	}
	if d.connector != nil {
		resp.OutboundPeers = d.connector.Connected()
	}
	if d.mixpool != nil {
		resp.MixingEntries = d.mixpool.Entries()
	}
	if d.staker != nil {
		resp.Staking = true
		resp.StakeAttempts = d.staker.Attempts()
	}
	if d.voter != nil {
		resp.Masternode = true
		_, resp.MasternodePings = d.voter.LastPing()
	}
	if d.store != nil {
		resp.Wallet.Enabled = true
		resp.Wallet.Path = d.store.Path()
		summary, err := d.store.Summary(ctx)
		if err != nil {
			d.logger.Warn("key store summary unavailable",
				logging.String(logging.FieldEventType, "status_wallet_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status omits wallet figures"),
				logging.String(logging.FieldErrorHint, "check debug.log for key store errors"),
			)
		} else {
			resp.Wallet.Keys = summary.Keys
			resp.Wallet.PoolSize = summary.PoolSize
			resp.Wallet.Transactions = summary.Transactions
			resp.Wallet.Balance = summary.Balance
			resp.Wallet.BestHeight = summary.BestHeight
		}
	}
	return resp
}
