// Package configs resolves simulacra's on-disk locations and loads its TOML
// configuration.
//
// Paths follow the XDG layout:
//
//	$XDG_CONFIG_HOME/simulacra/config.toml
//	$XDG_DATA_HOME/simulacra/{history.json,users.toml,session.toml,relay.json}
//
// Setting SIMULACRA_HOME places both trees under that directory instead,
// as config/ and data/.
package configs
