/*
   Corda - Distributed Ledger Node
   Copyright (C) 2026 Varun KM.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package api

// The flow lifecycle surface offered to authenticated RPC
// clients. Every operation is permission checked against the
// principal. Serialization framing of the RPC layer itself lives
// outside this package - these are the in-process semantics.

import (
	"context"

	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/acls"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/services"
)

var (
	PermissionDenied = errors.New("permission denied")
)

type APIServer struct {
	config_obj *config.Config
	logger     *logging.LogContext

	manager services.FlowManager
	journal services.JournalService
}

func NewAPIServer(config_obj *config.Config) (*APIServer, error) {
	manager, err := services.GetFlowManager(config_obj)
	if err != nil {
		return nil, err
	}

	journal, err := services.GetJournal(config_obj)
	if err != nil {
		return nil, err
	}

	return &APIServer{
		config_obj: config_obj,
		logger:     logging.GetLogger(config_obj, &logging.APIComponent),
		manager:    manager,
		journal:    journal,
	}, nil
}

// A started flow: its run id and the future holding the terminal
// result.
type FlowHandle struct {
	RunId  string
	Result *Future
}

// A tracked flow additionally streams its progress tracker steps.
type FlowProgressHandle struct {
	FlowHandle

	Progress <-chan string
	Cancel   func()
}

func (self *APIServer) checkStartAccess(
	principal, class_name string) error {

	ok, err := acls.CheckAccess(self.config_obj, principal,
		acls.START_FLOW, class_name)
	if err != nil {
		return err
	}
	if !ok {
		self.logger.Warn("Principal %v denied starting %v",
			principal, class_name)
		return PermissionDenied
	}

	if !self.manager.StartableByRPC(class_name) {
		return errors.Errorf(
			"flow %v is not startable by RPC", class_name)
	}
	return nil
}

func (self *APIServer) StartFlow(
	ctx context.Context,
	principal, class_name string,
	args ...interface{}) (*FlowHandle, error) {

	err := self.checkStartAccess(principal, class_name)
	if err != nil {
		return nil, err
	}

	run_id, result, err := self.manager.StartFlow(
		ctx, class_name, args, flows.INITIATOR_RPC)
	if err != nil {
		return nil, err
	}

	return &FlowHandle{
		RunId:  run_id,
		Result: NewFuture(result),
	}, nil
}

// StartTrackedFlow also subscribes to the flow's progress tracker
// before the flow runs, so no step is missed. Closing the stream is
// the client's responsibility via Cancel.
func (self *APIServer) StartTrackedFlow(
	ctx context.Context,
	principal, class_name string,
	args ...interface{}) (*FlowProgressHandle, error) {

	err := self.checkStartAccess(principal, class_name)
	if err != nil {
		return nil, err
	}

	run_id, result, release, err := self.manager.StartFlowHeld(
		ctx, class_name, args, flows.INITIATOR_RPC)
	if err != nil {
		return nil, err
	}

	rows, cancel := self.journal.Watch("Progress." + run_id)
	release()

	progress := make(chan string)
	go func() {
		defer close(progress)

		for row := range rows {
			step, pres := row.GetString("Step")
			if !pres {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case progress <- step:
			}
		}
	}()

	return &FlowProgressHandle{
		FlowHandle: FlowHandle{
			RunId:  run_id,
			Result: NewFuture(result),
		},
		Progress: progress,
		Cancel:   cancel,
	}, nil
}

func (self *APIServer) KillFlow(principal, run_id string) error {
	ok, err := acls.CheckAccess(self.config_obj, principal, acls.KILL_FLOW)
	if err != nil {
		return err
	}
	if !ok {
		return PermissionDenied
	}

	return self.manager.KillFlow(run_id)
}

// RegisteredFlows lists the class names this node can start.
func (self *APIServer) RegisteredFlows(principal string) ([]string, error) {
	ok, err := acls.CheckAccess(self.config_obj, principal, acls.READ_RESULTS)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, PermissionDenied
	}

	return self.manager.RegisteredFlows(), nil
}
