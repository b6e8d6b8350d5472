/*
Package ddns keeps one DNS A record pointed at the host's public IPv4 address.

Usage will always start with [ddns.New],
which takes the domain, the subdomain whose record is managed and a [Provider] option such as [UsingOVH].
[Client.Run] then checks the record for drift once at startup and polls the host's address forever,
updating the record whenever the address changes.

Addresses come from a [Resolver].
The default is [WebResolver] over [DefaultIPServices], which tries each JSON IP service in order.
*/
package ddns
