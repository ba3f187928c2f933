/*
Package energyledger holds the primitives shared by every part of the
settlement core: party and record addresses, and the helpers to derive them.

The actual machinery lives in the sub-packages. token models the fungible
records, ledger stores the unspent set, tx assembles and signs transactions,
contract validates them, directory maps account names to hosts and keys,
audit keeps the queryable trail, and flow drives the multi-party settlement
protocols over all of the above.
*/
package energyledger
