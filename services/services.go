package services

// Service registries, one per service interface. Registries are keyed
// by the node's party name so several nodes can share a process in
// tests. Registration happens at startup. Registering again for the
// same party replaces the previous instance; these registries are not
// frozen when the node starts serving.

import (
	errors "github.com/pkg/errors"
)

var (
	AlreadyRegisteredError = errors.New("service already registered")
	NotRegisteredError     = errors.New("service not registered")
)
