package opaque

// defaultRuleSource is the built-in pattern library: the canonical
// opaque-predicate idioms named in spec.md §4.9/§8. Confidence priors
// reflect how mechanically certain the identity is in plain JavaScript
// (`==`/`!=` double-equal idioms included, since obfuscators rarely
// preserve the distinction).
const defaultRuleSource = `
rule bitwise-and-one-is-mod-two confidence 99:
  ($x & 1) === ($x % 2)
  => tautology

rule xor-self-is-zero confidence 99:
  ($x ^ $x) === 0
  => tautology

rule xor-self-is-zero-loose confidence 95:
  ($x ^ $x) == 0
  => tautology

rule identity-equals-self confidence 99:
  $x === $x
  => tautology

rule identity-equals-self-loose confidence 95:
  $x == $x
  => tautology

rule or-zero-identity confidence 90:
  ($x | 0) === $x
  => tautology

rule and-self-equals-self confidence 85:
  ($x & $x) === $x
  => tautology

rule or-self-equals-self confidence 85:
  ($x | $x) === $x
  => tautology

rule not-equal-self-is-contradiction confidence 99:
  $x !== $x
  => contradiction

rule not-equal-self-is-contradiction-loose confidence 95:
  $x != $x
  => contradiction

rule xor-self-nonzero-is-contradiction confidence 95:
  ($x ^ $x) !== 0
  => contradiction
`
