// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for credential operations.
var (
	// loginAttempts counts login attempts by terminal outcome.
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"outcome"})

	// hashUpgrades counts legacy hashes replaced on successful verification.
	hashUpgrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyward_hash_upgrades_total",
		Help: "Total number of legacy hashes upgraded on verify",
	})

	// passcodesIssued counts passcodes generated for dispatch by usage.
	passcodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_passcodes_issued_total",
		Help: "Total number of passcodes issued for dispatch by usage",
	}, []string{"usage"})

	// credentialMutations counts SetCredentials commits by changed field.
	credentialMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_credential_mutations_total",
		Help: "Total number of committed credential mutations by field",
	}, []string{"field"})
)

// Login outcome label values.
const (
	outcomeAuthenticated = "authenticated"
	outcomeAmbiguous     = "ambiguous"
	outcomeRejected      = "rejected"
)
