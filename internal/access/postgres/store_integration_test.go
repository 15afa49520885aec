// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/galacticfy/galacticfy/internal/access"
	"github.com/galacticfy/galacticfy/internal/access/postgres"
	"github.com/galacticfy/galacticfy/internal/store"
)

type testEnv struct {
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *postgres.Store
}

func setupPostgresContainer() (*testEnv, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("galacticfy_test"),
		tcpostgres.WithUsername("galacticfy"),
		tcpostgres.WithPassword("galacticfy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	defer migrator.Close() //nolint:errcheck // best effort in tests
	if err := migrator.Up(); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := store.Connect(ctx, connStr, store.DefaultConnectOptions)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &testEnv{
		ctx:       ctx,
		container: container,
		pool:      pool,
		store:     postgres.New(pool),
	}, nil
}

func (e *testEnv) cleanup() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

var _ = Describe("Store", func() {
	var env *testEnv

	BeforeEach(func() {
		var err error
		env, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		env.cleanup()
	})

	Describe("roles", func() {
		It("assigns ids and lists roles in id order", func() {
			admin := &access.Role{Name: "admin", DisplayName: "Admin", JoinPriority: 10}
			vip := &access.Role{Name: "vip", DisplayName: "VIP", Staff: true}
			Expect(env.store.CreateRole(env.ctx, admin)).To(Succeed())
			Expect(env.store.CreateRole(env.ctx, vip)).To(Succeed())
			Expect(vip.ID).To(BeNumerically(">", admin.ID))

			roles, err := env.store.ListRoles(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(2))
			Expect(roles[0]).To(Equal(*admin))
			Expect(roles[1]).To(Equal(*vip))
		})

		It("reports duplicate names as already existing", func() {
			Expect(env.store.CreateRole(env.ctx, &access.Role{Name: "vip", DisplayName: "vip"})).To(Succeed())
			err := env.store.CreateRole(env.ctx, &access.Role{Name: "vip", DisplayName: "vip"})
			Expect(access.IsAlreadyExists(err)).To(BeTrue())
		})

		It("updates every mutable column", func() {
			role := &access.Role{Name: "mod", DisplayName: "mod"}
			Expect(env.store.CreateRole(env.ctx, role)).To(Succeed())

			role.Prefix = "[Mod] "
			role.Color = "blue"
			role.MaintenanceBypass = true
			Expect(env.store.UpdateRole(env.ctx, role)).To(Succeed())

			roles, err := env.store.ListRoles(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(ConsistOf(*role))
		})

		It("reports missing roles on update and delete", func() {
			err := env.store.UpdateRole(env.ctx, &access.Role{ID: 999, Name: "ghost"})
			Expect(access.IsNotFound(err)).To(BeTrue())
			Expect(access.IsNotFound(env.store.DeleteRole(env.ctx, 999))).To(BeTrue())
		})

		It("cascades grants and edges on delete", func() {
			parent := &access.Role{Name: "parent", DisplayName: "parent"}
			child := &access.Role{Name: "child", DisplayName: "child"}
			Expect(env.store.CreateRole(env.ctx, parent)).To(Succeed())
			Expect(env.store.CreateRole(env.ctx, child)).To(Succeed())
			Expect(env.store.AddGrant(env.ctx, parent.ID, access.Grant{Node: "chat.color", Scope: access.ScopeGlobal})).To(Succeed())
			Expect(env.store.AddEdge(env.ctx, access.Edge{RoleID: child.ID, ParentID: parent.ID})).To(Succeed())

			Expect(env.store.DeleteRole(env.ctx, parent.ID)).To(Succeed())

			grants, err := env.store.ListGrants(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(BeEmpty())
			edges, err := env.store.ListEdges(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(BeEmpty())
		})
	})

	Describe("grants", func() {
		It("ignores duplicate grants and removes a node under every scope", func() {
			role := &access.Role{Name: "builder", DisplayName: "builder"}
			Expect(env.store.CreateRole(env.ctx, role)).To(Succeed())

			g := access.Grant{Node: "world.edit", Scope: "creative"}
			Expect(env.store.AddGrant(env.ctx, role.ID, g)).To(Succeed())
			Expect(env.store.AddGrant(env.ctx, role.ID, g)).To(Succeed())
			Expect(env.store.AddGrant(env.ctx, role.ID, access.Grant{Node: "world.edit", Scope: access.ScopeGlobal})).To(Succeed())

			grants, err := env.store.ListGrants(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(HaveLen(2))

			removed, err := env.store.RemoveGrants(env.ctx, role.ID, "world.edit")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(2)))
		})

		It("rejects grants for unknown roles", func() {
			err := env.store.AddGrant(env.ctx, 4242, access.Grant{Node: "x", Scope: access.ScopeGlobal})
			Expect(access.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("assignments", func() {
		It("round-trips temporary assignments", func() {
			role := &access.Role{Name: "vip", DisplayName: "vip"}
			Expect(env.store.CreateRole(env.ctx, role)).To(Succeed())

			principal := uuid.New()
			expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
			Expect(env.store.SaveAssignment(env.ctx, &access.Assignment{
				PrincipalID: principal, Name: "Notch", RoleID: role.ID, ExpiresAt: &expires,
			})).To(Succeed())

			got, err := env.store.GetAssignment(env.ctx, principal)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RoleID).To(Equal(role.ID))
			Expect(got.Name).To(Equal("Notch"))
			Expect(got.ExpiresAt).NotTo(BeNil())
			Expect(got.ExpiresAt.Equal(expires)).To(BeTrue())

			Expect(env.store.SaveAssignment(env.ctx, &access.Assignment{
				PrincipalID: principal, Name: "Notch", RoleID: role.ID,
			})).To(Succeed())
			got, err = env.store.GetAssignment(env.ctx, principal)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ExpiresAt).To(BeNil())
		})

		It("reports principals without a row as not found", func() {
			_, err := env.store.GetAssignment(env.ctx, uuid.New())
			Expect(access.IsNotFound(err)).To(BeTrue())
		})

		It("finds the earliest principal by name case-insensitively", func() {
			first, second := uuid.New(), uuid.New()
			Expect(env.store.SaveAssignment(env.ctx, &access.Assignment{PrincipalID: first, Name: "Steve", RoleID: 1})).To(Succeed())
			Expect(env.store.SaveAssignment(env.ctx, &access.Assignment{PrincipalID: second, Name: "steve", RoleID: 1})).To(Succeed())

			found, err := env.store.FindPrincipalByName(env.ctx, "STEVE")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(Equal(first))

			_, err = env.store.FindPrincipalByName(env.ctx, "alex")
			Expect(access.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("engine", func() {
		It("grants inherited permissions per server and survives a reload", func() {
			engine, err := access.NewEngine(env.store)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Load(env.ctx)).To(Succeed())

			_, err = engine.CreateRole(env.ctx, access.RoleSpec{Name: "vip", Prefix: "[VIP] "})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Grant(env.ctx, "default", "server.lobby", access.ScopeGlobal)).To(Succeed())
			Expect(engine.Grant(env.ctx, "vip", "fly.*", "Survival")).To(Succeed())
			Expect(engine.AddParent(env.ctx, "vip", "default")).To(Succeed())

			player := uuid.New()
			Expect(engine.Assign(env.ctx, player, "Notch", "vip", nil)).To(Succeed())

			Expect(engine.Check(env.ctx, player, "fly.toggle", "survival")).To(BeTrue())
			Expect(engine.Check(env.ctx, player, "fly.toggle", "creative")).To(BeFalse())
			Expect(engine.Check(env.ctx, player, "server.lobby", "")).To(BeTrue())

			reloaded, err := access.NewEngine(env.store)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Load(env.ctx)).To(Succeed())
			Expect(reloaded.Check(env.ctx, player, "fly.toggle", "SURVIVAL")).To(BeTrue())

			role, err := reloaded.ActiveRole(env.ctx, player)
			Expect(err).NotTo(HaveOccurred())
			Expect(role.Prefix).To(Equal("[VIP] "))
		})

		It("demotes expired assignments and persists the demotion", func() {
			engine, err := access.NewEngine(env.store)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Load(env.ctx)).To(Succeed())
			_, err = engine.CreateRole(env.ctx, access.RoleSpec{Name: "trial"})
			Expect(err).NotTo(HaveOccurred())

			player := uuid.New()
			past := time.Now().Add(-time.Minute)
			Expect(engine.Assign(env.ctx, player, "Alex", "trial", &past)).To(Succeed())

			role, err := engine.ActiveRole(env.ctx, player)
			Expect(err).NotTo(HaveOccurred())
			Expect(role.Name).To(Equal(access.DefaultRoleName))

			stored, err := env.store.GetAssignment(env.ctx, player)
			Expect(err).NotTo(HaveOccurred())
			def, _ := engine.RoleByName(access.DefaultRoleName)
			Expect(stored.RoleID).To(Equal(def.ID))
			Expect(stored.ExpiresAt).To(BeNil())
		})
	})
})
