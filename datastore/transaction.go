package datastore

// The host transaction. Everything the framework makes externally
// visible around a suspension point - the checkpoint write or delete,
// the outbound session messages, feed rows, result completion - is
// staged on a Transaction and released by Commit in one step. If the
// store mutation fails nothing is released, so checkpoint content and
// side effects commit or fail together.

import (
	errors "github.com/pkg/errors"
)

type checkpoint_mutation struct {
	run_id string
	blob   []byte // nil means delete
}

type Transaction struct {
	db DataStore

	mutations []checkpoint_mutation

	// Released in order after the store mutations are durable.
	effects []func()

	done bool
}

func NewTransaction(db DataStore) *Transaction {
	return &Transaction{db: db}
}

func (self *Transaction) SetCheckpoint(run_id string, blob []byte) {
	self.mutations = append(self.mutations, checkpoint_mutation{
		run_id: run_id,
		blob:   blob,
	})
}

func (self *Transaction) DeleteCheckpoint(run_id string) {
	self.mutations = append(self.mutations, checkpoint_mutation{
		run_id: run_id,
	})
}

// AddEffect stages a side effect to run after a successful
// commit. Effects must not fail - anything fallible belongs before
// the commit boundary.
func (self *Transaction) AddEffect(effect func()) {
	self.effects = append(self.effects, effect)
}

func (self *Transaction) Commit() error {
	if self.done {
		return errors.New("transaction already finished")
	}
	self.done = true

	for _, mutation := range self.mutations {
		var err error
		if mutation.blob == nil {
			err = self.db.DeleteCheckpoint(mutation.run_id)
		} else {
			err = self.db.SetCheckpoint(mutation.run_id, mutation.blob)
		}
		if err != nil {
			return errors.Wrap(err, "host transaction aborted")
		}
	}

	for _, effect := range self.effects {
		effect()
	}
	return nil
}

func (self *Transaction) Rollback() {
	self.done = true
	self.mutations = nil
	self.effects = nil
}
