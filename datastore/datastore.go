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
// An interface into the durable checkpoint storage.
package datastore

import (
	"sync"

	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/config"
)

var (
	mu sync.Mutex

	// Memory stores are kept per node identity so several nodes can
	// share a process in tests without sharing checkpoints.
	memory_imp = make(map[string]*MemoryDataStore)

	file_imp = make(map[string]*FileBaseDataStore)

	NotFoundError = errors.New("checkpoint not found")
)

// The checkpoint store is a durable keyed map of run id to an opaque
// blob. A flow's presence here is authoritative: a flow whose
// checkpoint was never committed does not exist.
type DataStore interface {
	GetCheckpoint(run_id string) ([]byte, error)

	// SetCheckpoint and DeleteCheckpoint are only called through a
	// committing Transaction.
	SetCheckpoint(run_id string, blob []byte) error
	DeleteCheckpoint(run_id string) error

	// Enumerate all suspended flows. Only called at startup.
	ListCheckpoints() ([]string, error)

	Close()
}

func GetDB(config_obj *config.Config) (DataStore, error) {
	if config_obj.Datastore == nil {
		return nil, errors.New("no datastore configured")
	}

	mu.Lock()
	defer mu.Unlock()

	switch config_obj.Datastore.Implementation {
	case "Memory", "":
		db, pres := memory_imp[config_obj.PartyName]
		if !pres {
			db = NewMemoryDataStore()
			memory_imp[config_obj.PartyName] = db
		}
		return db, nil

	case "FileBaseDataStore":
		if config_obj.Datastore.Location == "" {
			return nil, errors.New(
				"No Datastore.location is set in the config.")
		}

		db, pres := file_imp[config_obj.Datastore.Location]
		if !pres {
			db = NewFileBaseDataStore(config_obj.Datastore.Location)
			file_imp[config_obj.Datastore.Location] = db
		}
		return db, nil

	default:
		return nil, errors.New("no datastore implementation " +
			config_obj.Datastore.Implementation)
	}
}
