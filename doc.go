/*
Package cfddns keeps a set of Cloudflare A records pointed at the public IPv4 address of this host.

Usage will usually start with [LoadConfig] and [Setup],
which resolve the record ID of every configured domain once and return a [Reconciler].
[Reconciler.Run] then discovers the current address and republishes it on a fixed interval.

Programs that do not read their configuration from the environment can assemble a Reconciler with [New],
a [Provider] such as the one returned by [NewCloudflare], and a [Resolver].
*/
package cfddns
