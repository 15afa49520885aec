// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

//go:build integration

package postgres_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Access Postgres Suite")
}
