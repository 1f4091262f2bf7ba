package suggest

// builtinEntries is the writing vocabulary shipped with folio. Terms whose
// alternatives do not include their own spelling are flagged in the text.
var builtinEntries = []Entry{
	{Term: "personagem", Alternatives: []string{"personagem", "personagens", "personagem principal", "personagens secundários"}},
	{Term: "narrativa", Alternatives: []string{"narrativa", "narrativas", "narrativa em primeira pessoa", "narrativa não linear"}},
	{Term: "capítulo", Alternatives: []string{"capítulo", "capítulos", "capítulo inicial", "capítulo final"}},
	{Term: "enredo", Alternatives: []string{"enredo", "enredos", "enredo principal", "trama"}},
	{Term: "cenário", Alternatives: []string{"cenário", "cenários", "cenário principal", "ambientação"}},
	{Term: "diálogo", Alternatives: []string{"diálogo", "diálogos", "diálogo interno", "conversa"}},
	{Term: "protagonista", Alternatives: []string{"protagonista", "protagonistas", "herói", "heroína"}},
	{Term: "antagonista", Alternatives: []string{"antagonista", "antagonistas", "vilão", "vilã"}},
	{Term: "conflito", Alternatives: []string{"conflito", "conflitos", "conflito central", "tensão"}},
	{Term: "clímax", Alternatives: []string{"clímax", "ponto de virada", "ápice"}},
	{Term: "desfecho", Alternatives: []string{"desfecho", "final", "conclusão", "resolução"}},
	{Term: "descrição", Alternatives: []string{"descrição", "descrições", "descrição detalhada"}},
	{Term: "emoção", Alternatives: []string{"emoção", "emoções", "sentimento"}},
	{Term: "atmosfera", Alternatives: []string{"atmosfera", "clima", "ambiente"}},
	{Term: "silêncio", Alternatives: []string{"silêncio", "silêncios", "quietude"}},
	{Term: "memória", Alternatives: []string{"memória", "memórias", "lembrança", "recordação"}},
	{Term: "não", Alternatives: []string{"não"}},
	{Term: "você", Alternatives: []string{"você", "vocês"}},
	{Term: "então", Alternatives: []string{"então"}},
	{Term: "também", Alternatives: []string{"também"}},
	{Term: "porém", Alternatives: []string{"porém", "contudo", "entretanto"}},
	{Term: "até", Alternatives: []string{"até"}},
	{Term: "além", Alternatives: []string{"além", "além disso"}},
	{Term: "após", Alternatives: []string{"após", "depois de"}},
	{Term: "três", Alternatives: []string{"três"}},
	{Term: "mãe", Alternatives: []string{"mãe", "mães"}},
	{Term: "irmão", Alternatives: []string{"irmão", "irmãos", "irmã"}},
	{Term: "coração", Alternatives: []string{"coração", "corações"}},
}
