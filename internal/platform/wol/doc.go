// Package wol sends Wake-on-LAN magic packets.
package wol
