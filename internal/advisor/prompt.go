package advisor

import (
	"fmt"
	"strings"
)

// Fixed user-visible replies that never involve a model call.
const (
	RefusalMessage = "Jeg er en studieveileder og kan bare svare på spørsmål om emner, " +
		"studieprogrammer og studieregler ved universitetet."
	NoInformationMessage = "Jeg fant ingen relevant informasjon om dette i kunnskapsbasen. " +
		"Kontakt studieveiledningen hvis du trenger mer hjelp."
	FailureMessage = "Beklager, noe gikk galt da svaret skulle lages. Prøv igjen om litt."
	InvalidMessage = "Spørsmålet er tomt eller for langt. Skriv et kortere spørsmål."
)

const systemPrompt = `Du er en studieveileder ved et universitet.

GRUNNREGEL:
Svar kun basert på informasjonen du får i konteksten.

UNNTAK, KONSEPTFORKLARING:
Hvis brukeren ber om å forklare et faglig konsept, kan du bruke generell,
allment anerkjent fagkunnskap så lenge konseptet er relevant for emnene i
konteksten og forklaringen er nøktern og faglig korrekt.

KRAV:
- Skill tydelig mellom informasjon fra konteksten og generell fagkunnskap.
- Ikke anta studieprogram, kull eller studieretning som brukeren ikke har oppgitt.
- Hvis informasjonen mangler i konteksten, si det eksplisitt.
- Hvis spørsmålet faller utenfor emnene og reglene i konteksten, si det tydelig.

FORBUD:
- Ikke svar på urelaterte temaer.
- Ikke improviser eller gjett.

SPRÅK:
Norsk, strukturert og presist.`

// userMessage joins the budgeted context and the question.
func userMessage(context, question string) string {
	var b strings.Builder
	if strings.TrimSpace(context) != "" {
		fmt.Fprintf(&b, "Tilgjengelig informasjon:\n\n%s\n\n", context)
	} else {
		b.WriteString("Tilgjengelig informasjon: ingen.\n\n")
	}
	fmt.Fprintf(&b, "Spørsmål:\n%s\n\n", question)
	b.WriteString("Hvis du bruker generell fagkunnskap, merk dette eksplisitt.")
	return b.String()
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", p)
}
