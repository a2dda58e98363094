// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package integrationmanager is the in-process registry of a user's
// integration settings: whether integrations are enabled, which
// integration managers are configured, and which widgets and native
// widget domains the user has allowed.
//
// [Service] keeps a cache seeded from three account data documents
// (im.vector.setting.integration_provisioning,
// im.vector.setting.allowed_widgets, m.widgets) and the homeserver's
// /.well-known/matrix/client. All reads are served from the cache and
// never block on the network. Unknown widgets and domains read as not
// allowed.
//
// Mutations ([Service.SetIntegrationEnabled], [Service.SetWidgetAllowed],
// [Service.SetNativeWidgetDomainAllowed]) write the whole account data
// document asynchronously and return an [async.Request]. On success
// the cache is updated and listeners are notified, then the callback
// runs. On failure only the callback learns about it. A canceled
// request delivers nothing and leaves the cache alone; the write, if
// it reached the homeserver, arrives later through /sync like a change
// made on another device. Writes to the same document are serialized
// so concurrent updates to different keys are never lost.
//
// Integration manager configs come from three tiers, ordered
// [KindAccountData], [KindWellKnown], [KindDefault]. The default tier
// is always present, so [Service.OrderedConfigs] is never empty and
// [Service.PreferredConfig] is its head.
//
// Listeners are notified on the goroutine that applied the change: a
// mutation's request goroutine, or the caller of HandleAccountData,
// Load, RefreshWellKnown, or Restore. The cache lock is never held
// during delivery.
package integrationmanager
